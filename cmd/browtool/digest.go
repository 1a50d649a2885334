package main

import (
	"flag"
	"fmt"
	"os"

	"browtool/pkg/digest"
)

func runDigestCommand(args []string) error {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	maxText := fs.Int("max-text", 0, "Max text characters (defaults to digest.max_text_chars)")
	maxLinks := fs.Int("max-links", 0, "Max links (defaults to digest.max_links)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return withExitCode(fmt.Errorf("usage: browtool digest <file.html>"), 2)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts := digest.Options{
		MaxTextChars:     cfg.Digest.MaxTextChars,
		MaxLinks:         cfg.Digest.MaxLinks,
		MaxLinkTextChars: cfg.Digest.MaxLinkTextChars,
	}
	if *maxText > 0 {
		opts.MaxTextChars = *maxText
	}
	if *maxLinks > 0 {
		opts.MaxLinks = *maxLinks
	}

	markup, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	return printJSON(digest.ExtractWithOptions(string(markup), opts))
}
