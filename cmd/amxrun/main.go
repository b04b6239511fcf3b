package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/term"
)

func main() {
	var o options
	flag.StringVar(&o.script, "script", "", "Script to run (.pasm source or .amxc image)")
	flag.StringVar(&o.public, "public", "main", "Public function to call")
	flag.StringVar(&o.args, "args", "", "Arguments as comma-separated cells")
	flag.IntVar(&o.ticks, "ticks", 0, "Host ticks to run after the call")
	flag.DurationVar(&o.tick, "tick", 0, "Tick interval (default from config)")
	flag.StringVar(&o.wasm, "wasm", "", "Wasm module whose i32 exports become natives")
	flag.StringVar(&o.config, "config", "", "TOML engine configuration")
	flag.StringVar(&o.compile, "compile", "", "Write the compiled image to this path")
	flag.BoolVar(&o.verbose, "v", false, "Debug logging")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if o.script == "" {
		fmt.Fprintln(os.Stderr, "Usage: amxrun -script <file.pasm|file.amxc> [-public name] [-args 1,2] [-ticks N]")
		fmt.Fprintln(os.Stderr, "       amxrun -script <file.pasm> -compile <out.amxc>")
		fmt.Fprintln(os.Stderr, "       amxrun -script <file> -i  (interactive mode)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	if o.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		err = runInteractive(ctx, o)
	} else {
		err = run(ctx, o)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	args, err := parseArgs(o.args)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, o, os.Stdout)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if o.compile != "" && o.public == "" {
		return nil
	}

	ret, err := s.call(o.public, args)
	if err != nil {
		return fmt.Errorf("call %s: %w", o.public, err)
	}
	fmt.Printf("%s returned %d\n", o.public, ret)

	if err := s.drain(ctx, o.ticks); err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.eng.Bridge().Wait(wctx); err != nil {
		return fmt.Errorf("waiting for workers: %w", err)
	}
	if n := s.eng.Pool().Len(); n > 0 {
		fmt.Printf("%d tasks still pending\n", n)
	}
	if f := s.eng.LastFault(s.m); f != nil {
		fmt.Printf("last fault: %v\n", f)
	}
	return nil
}
