package main

import (
	"context"
	"flag"
	"fmt"
)

func (cli *commandLine) merge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(cli.out)
	classID := fs.Int("class", 0, "The class id.")
	action, err := subcommand(fs, args)
	if err != nil {
		return err
	}
	if *classID <= 0 {
		fs.Usage()
		return errHelp
	}

	ctx := context.Background()
	switch action {
	case "add":
		groupID, err := cli.hubbleSvc.AddClassToMergeGroup(ctx, *classID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "class %d is in merge group %d\n", *classID, groupID)
	case "remove":
		removed, err := cli.hubbleSvc.RemoveClassFromMergeGroup(ctx, *classID)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(cli.out, "class %d is not in a merge group\n", *classID)
			return nil
		}
		fmt.Fprintf(cli.out, "class %d removed from its merge group\n", *classID)
	case "show":
		entries, err := cli.hubbleSvc.GetMergeGroup(ctx, *classID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(cli.out, "group %d\torder %d\tclass %d\n", e.GroupID, e.MergeOrder, e.ClassID)
		}
	default:
		fs.Usage()
		return errHelp
	}
	return nil
}

func (cli *commandLine) override(args []string) error {
	fs := flag.NewFlagSet("override", flag.ContinueOnError)
	fs.SetOutput(cli.out)
	classID := fs.Int("class", 0, "The class id.")
	action, err := subcommand(fs, args)
	if err != nil {
		return err
	}
	if *classID <= 0 {
		fs.Usage()
		return errHelp
	}

	ctx := context.Background()
	switch action {
	case "set":
		_, groupID, err := cli.hubbleSvc.SetWaitingRoomOverride(ctx, *classID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "override set, class %d is in merge group %d\n", *classID, groupID)
	case "remove":
		deleted, err := cli.hubbleSvc.RemoveWaitingRoomOverride(ctx, *classID)
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Fprintf(cli.out, "class %d has no override\n", *classID)
			return nil
		}
		fmt.Fprintf(cli.out, "override removed for class %d\n", *classID)
	default:
		fs.Usage()
		return errHelp
	}
	return nil
}
