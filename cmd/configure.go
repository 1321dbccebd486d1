package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"emperror.dev/errors"
	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/asaskevich/govalidator"
	"github.com/spf13/cobra"

	"github.com/filebay/filebay/config"
)

var configureArgs struct {
	RootDirectory string
	Port          string
	BackendURL    string
	Override      bool
}

func newConfigureCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "configure",
		Short: "Write a configuration file, prompting for any value not passed as a flag",
		Args:  cobra.NoArgs,
		RunE:  configureCmdRun,
	}
	command.Flags().StringVarP(&configureArgs.RootDirectory, "root", "r", "", "the directory to share")
	command.Flags().StringVarP(&configureArgs.Port, "port", "p", "", "the port the API listens on")
	command.Flags().StringVarP(&configureArgs.BackendURL, "backend-url", "b", "", "the URL the front end uses to reach the API")
	command.Flags().BoolVar(&configureArgs.Override, "override", false, "override an existing configuration")
	return command
}

func configureCmdRun(*cobra.Command, []string) error {
	p, err := filepath.Abs(configPath)
	if err != nil {
		return errors.WithStack(err)
	}

	if _, err := os.Stat(p); err == nil && !configureArgs.Override {
		if err := survey.AskOne(&survey.Confirm{Message: "Override existing configuration file " + p + "?"}, &configureArgs.Override); err != nil {
			return promptError(err)
		}
		if !configureArgs.Override {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Start from whatever is there already so values that are not prompted
	// for survive the rewrite.
	c, err := config.Load(p)
	if err != nil {
		if c, err = config.NewAtPath(p); err != nil {
			return err
		}
	}

	var questions []*survey.Question
	if configureArgs.RootDirectory == "" {
		questions = append(questions, &survey.Question{
			Name:     "RootDirectory",
			Prompt:   &survey.Input{Message: "Directory to share:", Default: c.System.RootDirectory},
			Validate: validateAbsolutePath,
		})
	}
	if configureArgs.Port == "" {
		questions = append(questions, &survey.Question{
			Name:     "Port",
			Prompt:   &survey.Input{Message: "API port:", Default: strconv.Itoa(c.Api.Port)},
			Validate: validatePort,
		})
	}
	if configureArgs.BackendURL == "" {
		questions = append(questions, &survey.Question{
			Name:     "BackendURL",
			Prompt:   &survey.Input{Message: "API URL used by the front end:", Default: c.Frontend.BackendURL},
			Validate: validateURL,
		})
	}
	if err := survey.Ask(questions, &configureArgs); err != nil {
		return promptError(err)
	}

	for _, check := range []struct {
		fn func(interface{}) error
		v  string
	}{
		{validateAbsolutePath, configureArgs.RootDirectory},
		{validatePort, configureArgs.Port},
		{validateURL, configureArgs.BackendURL},
	} {
		if err := check.fn(check.v); err != nil {
			return err
		}
	}

	port, _ := strconv.Atoi(configureArgs.Port)
	c.System.RootDirectory = configureArgs.RootDirectory
	c.Api.Port = port
	c.Frontend.BackendURL = configureArgs.BackendURL
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.WriteToDisk(); err != nil {
		return err
	}

	fmt.Println("Successfully configured filebay, configuration written to " + p)
	return nil
}

func promptError(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errors.New("aborted")
	}
	return errors.WithStack(err)
}

func validateAbsolutePath(ans interface{}) error {
	if s, ok := ans.(string); !ok || !filepath.IsAbs(s) {
		return errors.New("the directory must be an absolute path")
	}
	return nil
}

func validatePort(ans interface{}) error {
	if s, ok := ans.(string); !ok || !govalidator.IsPort(s) {
		return errors.New("the port must be a number between 1 and 65535")
	}
	return nil
}

func validateURL(ans interface{}) error {
	if s, ok := ans.(string); !ok || !govalidator.IsRequestURL(s) {
		return errors.New("the value must be an absolute URL, e.g. http://localhost:5000")
	}
	return nil
}
