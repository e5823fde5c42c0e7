// knowme-ask — одноразовый вопрос к чату из терминала.
//
// Использует тот же оркестратор, что и сервер: история сессии,
// каталог инструментов и лимит раундов берутся из config.yaml.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilkoid/knowme/internal/agent"
	"github.com/ilkoid/knowme/internal/ui"
	"github.com/ilkoid/knowme/pkg/app"
	"github.com/ilkoid/knowme/pkg/utils"
)

// CLI flags
var (
	flagConfig  = flag.String("config", "", "Path to config.yaml (default: auto-detect)")
	flagQuery   = flag.String("query", "", "Question (default: read from stdin)")
	flagSession = flag.String("session", "", "Session id to continue (default: new session)")
	flagUser    = flag.String("user", "", "User id for document search (default: anonymous)")
	flagTimeout = flag.Duration("timeout", 2*time.Minute, "Execution timeout")
	flagWidth   = flag.Int("width", ui.DefaultWidth, "Wrap width for the answer")
	flagVerbose = flag.Bool("verbose", false, "Show tool arguments and results")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprint(os.Stderr, ui.RenderError(err))
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	cfg, _, err := app.InitializeConfig(&app.DefaultConfigPathFinder{ConfigFlag: *flagConfig})
	if err != nil {
		return err
	}

	// Лог CLI — только в файл, чтобы не мешать выводу
	if cfg.App.LogFile != "" {
		if err := utils.InitLogger(cfg.App.LogFile, cfg.App.Debug); err != nil {
			log.Printf("Warning: failed to init logger: %v", err)
		}
	} else {
		utils.SetOutput(io.Discard, false)
	}

	query := getUserQuery()
	if query == "" {
		return fmt.Errorf("empty query")
	}

	ctx, shutdown := utils.SetupGracefulShutdownWithContext()
	defer shutdown()

	components, err := app.Initialize(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer components.Close()

	result, err := app.Execute(ctx, components, agent.Request{
		Message:   query,
		SessionID: *flagSession,
		UserID:    *flagUser,
	}, *flagTimeout)
	if err != nil {
		return err
	}

	fmt.Print(ui.RenderResult(query, result.Result, result.Duration, ui.Options{
		Width:   *flagWidth,
		Verbose: *flagVerbose,
	}))
	return nil
}

// getUserQuery получает запрос из флага или stdin.
func getUserQuery() string {
	if *flagQuery != "" {
		return strings.TrimSpace(*flagQuery)
	}

	fmt.Fprint(os.Stderr, "Enter query (press Ctrl+D when done):\n")

	var input strings.Builder
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if input.Len() > 0 {
			input.WriteString(" ")
		}
		input.WriteString(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		return ""
	}

	return strings.TrimSpace(input.String())
}
