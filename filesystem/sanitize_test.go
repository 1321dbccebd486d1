package filesystem

import (
	"testing"

	. "github.com/franela/goblin"
)

func TestSecureFilename(t *testing.T) {
	g := Goblin(t)

	g.Describe("SecureFilename", func() {
		g.It("leaves safe names alone", func() {
			g.Assert(SecureFilename("report-2024.v2_final.pdf")).Equal("report-2024.v2_final.pdf")
		})

		g.It("joins whitespace with underscores", func() {
			g.Assert(SecureFilename("My  cool \t movie.mov")).Equal("My_cool_movie.mov")
		})

		g.It("removes path separators", func() {
			g.Assert(SecureFilename("../../../etc/passwd")).Equal("etc_passwd")
			g.Assert(SecureFilename(`..\..\windows\system32`)).Equal("windows_system32")
		})

		g.It("folds accents and drops other unicode", func() {
			g.Assert(SecureFilename("résumé.txt")).Equal("resume.txt")
			g.Assert(SecureFilename("日本語.txt")).Equal("txt")
		})

		g.It("strips leading and trailing dots and underscores", func() {
			g.Assert(SecureFilename(".bashrc")).Equal("bashrc")
			g.Assert(SecureFilename("__init__.py")).Equal("init__.py")
		})

		g.It("returns an empty string when nothing is left", func() {
			g.Assert(SecureFilename("")).Equal("")
			g.Assert(SecureFilename("..")).Equal("")
			g.Assert(SecureFilename(".")).Equal("")
			g.Assert(SecureFilename("???")).Equal("")
		})

		g.It("prefixes reserved device names", func() {
			g.Assert(SecureFilename("con.txt")).Equal("_con.txt")
			g.Assert(SecureFilename("NUL")).Equal("_NUL")
			g.Assert(SecureFilename("console.txt")).Equal("console.txt")
		})

		g.It("is idempotent", func() {
			for _, in := range []string{"a b/c", "résumé.txt", "..x..", "con", "a\\b"} {
				once := SecureFilename(in)
				g.Assert(SecureFilename(once)).Equal(once)
			}
		})
	})
}

func TestDestination(t *testing.T) {
	g := Goblin(t)

	g.Describe("Destination", func() {
		g.It("uses the filename when no path is declared", func() {
			p, ok := Destination("", "", "a.txt")
			g.Assert(ok).IsTrue()
			g.Assert(p).Equal("a.txt")

			p, ok = Destination("/base/dir/", "", "a b.txt")
			g.Assert(ok).IsTrue()
			g.Assert(p).Equal("base/dir/a_b.txt")
		})

		g.It("keeps the declared directories", func() {
			p, ok := Destination("up", "docs/sub/b.txt", "b.txt")
			g.Assert(ok).IsTrue()
			g.Assert(p).Equal("up/docs/sub/b.txt")
		})

		g.It("prefers the declared name over the filename", func() {
			p, ok := Destination("", "docs/renamed.txt", "original.txt")
			g.Assert(ok).IsTrue()
			g.Assert(p).Equal("docs/renamed.txt")
		})

		g.It("accepts backslash separators", func() {
			p, ok := Destination("", `docs\sub\b.txt`, "b.txt")
			g.Assert(ok).IsTrue()
			g.Assert(p).Equal("docs/sub/b.txt")
		})

		g.It("drops empty, dot and traversal segments", func() {
			p, ok := Destination("", "a//./b/../../etc/passwd", "passwd")
			g.Assert(ok).IsTrue()
			g.Assert(p).Equal("a/b/etc/passwd")
		})

		g.It("drops segments that sanitize to nothing", func() {
			p, ok := Destination("", "docs/???/x.txt", "x.txt")
			g.Assert(ok).IsTrue()
			g.Assert(p).Equal("docs/x.txt")
		})

		g.It("falls back to the filename when the declared path is unusable", func() {
			p, ok := Destination("base", "../../..", "x.txt")
			g.Assert(ok).IsTrue()
			g.Assert(p).Equal("base/x.txt")
		})

		g.It("reports false when nothing usable is left", func() {
			_, ok := Destination("", "", "..")
			g.Assert(ok).IsFalse()

			_, ok = Destination("", "../..", "日本")
			g.Assert(ok).IsFalse()
		})
	})
}
