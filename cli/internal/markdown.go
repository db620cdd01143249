package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/prodpro/prodpro/internal/config"
)

// renderMarkdown renders markdown content, using glamour for terminal output or plain text otherwise
func renderMarkdown(out io.Writer, markdown string, theme string) string {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		// For non-terminal output (pipes, redirects), return plain markdown
		return markdown
	}

	rendered, err := glamour.Render(markdown, theme)
	if err != nil {
		// Fall back to plain markdown if rendering fails
		return markdown
	}
	return rendered
}

// printMarkdown renders and prints markdown using the context's theme
func printMarkdown(out io.Writer, cliCtx *CliContext, markdown string) {
	fmt.Fprint(out, renderMarkdown(out, markdown, getTheme(cliCtx)))
}

// getTheme returns the theme from the current context, or "auto" if unavailable
func getTheme(cliCtx *CliContext) string {
	if cliCtx == nil || cliCtx.Settings == nil || cliCtx.Settings.Theme == "" {
		return config.DefaultTheme
	}
	return cliCtx.Settings.Theme
}
