// Command report renders every sales chart of a data export to JSON and
// SVG files, and manages encryption of the data directory.
//
// Usage:
//
//	report [run] [-out dir] [-data dir] [-file name] [-workers n] [-svg] [-unlock] [-q]
//	report encrypt [-data dir]
//	report decrypt [-data dir]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"salesviz/internal/config"
	"salesviz/internal/logging"
	"salesviz/internal/services/analyses"
	"salesviz/internal/services/coerce"
	"salesviz/internal/services/dataloader"
	"salesviz/internal/services/dataset"
	"salesviz/internal/services/format"
	"salesviz/internal/services/metrics"
	"salesviz/internal/services/normalizer"
	"salesviz/internal/services/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	p := &prompter{in: stdin, out: stderr}
	switch cmd {
	case "run":
		return runReport(ctx, cfg, args, p, stdout, stderr)
	case "encrypt":
		return runEncrypt(cfg, args, p, stdout)
	case "decrypt":
		return runDecrypt(cfg, args, p, stdout)
	}
	return fmt.Errorf("unknown command %q (want run, encrypt or decrypt)", cmd)
}

func runReport(ctx context.Context, cfg *config.Config, args []string, p *prompter, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "report", "Output directory")
	dataDir := fs.String("data", cfg.DataDirectory, "Data directory")
	file := fs.String("file", cfg.DataFile, "Export to read (default: newest in the data directory)")
	workers := fs.Int("workers", cfg.Workers, "Charts computed at once (0 = all)")
	svg := fs.Bool("svg", true, "Also draw SVG files")
	unlock := fs.Bool("unlock", false, "Prompt for the data directory password")
	quiet := fs.Bool("q", false, "No progress bar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.DataDirectory, cfg.DataFile = *dataDir, *file

	store, err := openStore(cfg, p, *unlock)
	if err != nil {
		return err
	}

	order, err := coerce.ParseDateOrder(cfg.DateOrder)
	if err != nil {
		return err
	}
	parser := coerce.NewParser(order, cfg.Location())
	opts := analyses.DefaultOptions()
	opts.Parser = parser
	opts.TopN = cfg.TopN
	opts.BinWidth = cfg.BinWidth

	ds, err := dataset.NewHandle(dataloader.New(store, cfg.DataFilePath(), parser, dataloader.WithColumns(opts.Columns))).Load(ctx)
	if err != nil {
		return err
	}

	w := &Writer{
		Catalog:   analyses.Default(),
		Options:   opts,
		Summaries: metrics.New(normalizer.FieldSpec{Columns: opts.Columns, Parser: parser}),
		Workers:   *workers,
		SVG:       *svg,
	}
	if !*quiet {
		w.Progress = stderr
	}

	report, err := w.Write(ctx, ds, *out)
	if err != nil {
		return err
	}
	printReport(stdout, ds.Source, *out, report)
	return nil
}

func printReport(w io.Writer, source, outDir string, r *Report) {
	fmt.Fprintf(w, "%s: %s dòng, doanh số %s\n", source,
		format.Int(float64(r.Summary.RawRows)), format.VND(r.Summary.TotalRevenue))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tROWS\tDROPPED\tNOTE")
	for _, e := range r.Charts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", e.ID, e.State, e.Rows, e.Dropped, e.Message)
	}
	tw.Flush()
	fmt.Fprintf(w, "written to %s\n", outDir)
}

// openStore opens the data directory and unlocks it when encrypted.
func openStore(cfg *config.Config, p *prompter, prompt bool) (*storage.Storage, error) {
	store, err := storage.New(cfg.DataDirectory)
	if err != nil {
		return nil, err
	}
	if !store.IsEncrypted() {
		return store, nil
	}

	password := cfg.Password
	if prompt || password == "" {
		if !prompt {
			return nil, fmt.Errorf("%s is encrypted: use -unlock or set %s_PASSWORD", cfg.DataDirectory, config.EnvPrefix)
		}
		if password, err = p.password("Password: "); err != nil {
			return nil, err
		}
	}
	if err := store.Unlock(password); err != nil {
		return nil, err
	}
	return store, nil
}

func dataFlags(name string, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	dataDir := fs.String("data", cfg.DataDirectory, "Data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.DataDirectory = *dataDir
	return nil
}

func runEncrypt(cfg *config.Config, args []string, p *prompter, stdout io.Writer) error {
	if err := dataFlags("encrypt", cfg, args); err != nil {
		return err
	}
	store, err := storage.New(cfg.DataDirectory)
	if err != nil {
		return err
	}
	if store.IsEncrypted() {
		return storage.ErrAlreadyEncrypted
	}

	password, err := p.password("New password: ")
	if err != nil {
		return err
	}
	confirm, err := p.password("Repeat password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	if err := store.EnableEncryption(password); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "encrypted %s\n", cfg.DataDirectory)
	return nil
}

func runDecrypt(cfg *config.Config, args []string, p *prompter, stdout io.Writer) error {
	if err := dataFlags("decrypt", cfg, args); err != nil {
		return err
	}
	store, err := storage.New(cfg.DataDirectory)
	if err != nil {
		return err
	}
	if !store.IsEncrypted() {
		return storage.ErrNotEncrypted
	}

	password, err := p.password("Password: ")
	if err != nil {
		return err
	}
	if err := store.DisableEncryption(password); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "decrypted %s\n", cfg.DataDirectory)
	return nil
}

// prompter reads passwords without echo from a terminal, or line by line
// from any other input.
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func (p *prompter) password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
