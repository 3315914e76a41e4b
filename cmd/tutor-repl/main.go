package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ent0n29/tutor/internal/app"
	"github.com/ent0n29/tutor/internal/audio"
	"github.com/ent0n29/tutor/internal/config"
	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/observability"
	"github.com/ent0n29/tutor/internal/tutor"
)

const helpText = `commands:
  /mode <conversation|vocabulary|grammar> [option]   switch mode (clears history)
  /modes                                             list modes
  /reset                                             clear history
  /history                                           print the turn log
  /quit                                              exit
anything else is sent to the tutor`

func main() {
	audioDir := flag.String("audio-dir", "", "directory for reply WAV files (empty disables)")
	kind := flag.String("mode", "conversation", "starting mode")
	option := flag.String("option", "", "starting mode option")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tutor-repl: config error: %v\n", err)
		os.Exit(2)
	}
	observability.SetLogger(observability.NewLogger(os.Stderr, "warn"))

	start, err := mode.Parse(*kind, *option)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tutor-repl: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tutor-repl: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = built.Cleanup() }()

	r := &repl{
		session:  built.NewTutor("repl", start),
		out:      os.Stdout,
		audioDir: *audioDir,
	}
	fmt.Fprintf(os.Stdout, "tutor ready (model=%s speech=%s) mode=%s\n%s\n", built.Providers.Model, built.Providers.Speech, start, helpText)
	if err := r.run(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "tutor-repl: %v\n", err)
		os.Exit(1)
	}
}

type repl struct {
	session  *tutor.Session
	out      io.Writer
	audioDir string
	clips    int
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		r.ask(ctx, line)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) command(line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/modes":
		for _, m := range mode.All() {
			fmt.Fprintf(r.out, "  %s\n", m)
		}
	case "/reset":
		r.session.Reset()
		fmt.Fprintln(r.out, "history cleared")
	case "/history":
		turns := r.session.History()
		if len(turns) == 0 {
			fmt.Fprintln(r.out, "(empty)")
		}
		for _, t := range turns {
			fmt.Fprintln(r.out, t.String())
		}
	case "/mode":
		if len(fields) < 2 {
			fmt.Fprintf(r.out, "current mode: %s\n", r.session.Mode())
			return false
		}
		var option string
		if len(fields) > 2 {
			option = fields[2]
		}
		m, err := mode.Parse(fields[1], option)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return false
		}
		changed, err := r.session.SetMode(m)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return false
		}
		if changed {
			fmt.Fprintf(r.out, "mode: %s (history cleared)\n", m)
		} else {
			fmt.Fprintf(r.out, "mode: %s\n", m)
		}
	default:
		fmt.Fprintf(r.out, "unknown command %s\n", fields[0])
	}
	return false
}

func (r *repl) ask(ctx context.Context, question string) {
	res, err := r.session.Submit(ctx, question, r.session.Mode())
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "tutor: %s\n", res.Reply)
	if res.HasReview {
		fmt.Fprintf(r.out, "%s\n", res.Review)
	}
	if res.AudioErr != nil {
		fmt.Fprintf(r.out, "(audio unavailable: %v)\n", res.AudioErr)
	}
	if len(res.Audio) == 0 || r.audioDir == "" {
		return
	}
	r.clips++
	path := filepath.Join(r.audioDir, fmt.Sprintf("reply-%03d.wav", r.clips))
	if err := audio.WriteFile(path, res.Audio); err != nil {
		fmt.Fprintf(r.out, "(write audio: %v)\n", err)
		return
	}
	fmt.Fprintf(r.out, "(audio: %s)\n", path)
}
