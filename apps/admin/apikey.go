package main

import (
	"context"
	"flag"
	"fmt"
)

func (cli *commandLine) apiKey(args []string) error {
	fs := flag.NewFlagSet("apikey", flag.ContinueOnError)
	fs.SetOutput(cli.out)
	client := fs.String("client", "", "The name of the client the key is issued to.")
	action, err := subcommand(fs, args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch action {
	case "create":
		if *client == "" {
			fs.Usage()
			return errHelp
		}
		plaintext, key, err := cli.apiKeySvc.Create(ctx, *client)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "key %d issued to %s, it will not be shown again:\n%s\n", key.ID, key.Client, plaintext)
	case "verify":
		plaintext, err := cli.prompt("Enter API key:")
		if err != nil {
			return err
		}
		if plaintext == "" {
			fs.Usage()
			return errHelp
		}
		key, err := cli.apiKeySvc.Verify(ctx, plaintext)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "valid key %d of %s\n", key.ID, key.Client)
	default:
		fs.Usage()
		return errHelp
	}
	return nil
}
