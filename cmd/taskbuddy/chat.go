package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nugget/taskbuddy/internal/assistant"
	"github.com/nugget/taskbuddy/internal/config"
	"github.com/nugget/taskbuddy/internal/theme"
)

// openApp loads config and builds the app for the one-shot and
// interactive commands. Logs go to stderr at warn or above so stdout
// carries only replies. The returned close func releases the database.
func openApp(ctx context.Context, stderr io.Writer, configPath string) (*app, func(), error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := configuredLogger(stderr, cfg, slog.LevelWarn)

	db, err := openDB(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return a, func() { db.Close() }, nil
}

// runChat handles "taskbuddy chat": a terminal REPL over one session.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	a, closeDB, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	interp := assistant.New(a.dispatcher(), a.options(nil))
	return chatLoop(ctx, stdin, stdout, interp, a.cfg.Assistant.Name)
}

// chatLoop prints the greeting, then submits each input line until EOF,
// "/quit" or ctx ends.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, interp *assistant.Interpreter, name string) error {
	if name == "" {
		name = config.Default().Assistant.Name
	}
	fmt.Fprintf(out, "%s: %s\n", name, interp.Greeting())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		turn, err := interp.Submit(ctx, line)
		if err != nil {
			if errors.Is(err, assistant.ErrBusy) {
				fmt.Fprintln(out, "(still working on the previous message)")
				continue
			}
			return fmt.Errorf("chat: %w", err)
		}
		fmt.Fprintf(out, "%s: %s\n", name, turn.Text)
	}
}

// runAsk handles "taskbuddy ask <message>".
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, message string) error {
	a, closeDB, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	interp := assistant.New(a.dispatcher(), a.options(nil))
	turn, err := interp.Submit(ctx, message)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout, turn.Text)
	return nil
}

// runThemes handles "taskbuddy themes".
func runThemes(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	a, closeDB, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	return printThemes(stdout, a.themes.Catalog(), a.themes.Current().Key, outputFmt)
}

// printThemes lists the catalog, marking the active theme.
func printThemes(w io.Writer, catalog theme.Catalog, current, outputFmt string) error {
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"current": current,
			"themes":  catalog.Entries(),
		})
	}
	for _, e := range catalog.Entries() {
		mark := " "
		if e.Key == current {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-8s %-16s %s\n", mark, e.Key, e.Label, e.Description)
	}
	return nil
}

// runTeamExport handles "taskbuddy team export [file]".
func runTeamExport(ctx context.Context, stdout, stderr io.Writer, configPath string, args []string) error {
	a, closeDB, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	w := stdout
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create %s: %w", args[0], err)
		}
		defer f.Close()
		w = f
	}

	n, err := a.team.ExportVCards(ctx, w)
	if err != nil {
		return fmt.Errorf("export team: %w", err)
	}
	if w != stdout {
		fmt.Fprintf(stdout, "Exported %d members to %s\n", n, args[0])
	}
	return nil
}
