package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/cosmicds/cds-api/core"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
)

var validate, _ = core.NewValidator()

func (cli *commandLine) addStudent(args []string) error {
	fs := flag.NewFlagSet("student", flag.ContinueOnError)
	fs.SetOutput(cli.out)
	username := fs.String("username", "", "The student's username.")
	email := fs.String("email", "", "The student's email.")
	seed := fs.Bool("seed", false, "Seed student, kept in exports.")
	dummy := fs.Bool("dummy", false, "Test student, left out of exports unless seed.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ns := roster.NewStudent{Username: *username, Email: *email, Seed: *seed, Dummy: *dummy}
	if err := ns.Validate(validate); err != nil {
		fs.Usage()
		return errHelp
	}
	student, err := cli.rosterSvc.CreateStudent(context.Background(), ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "student %d created\n", student.ID)
	return nil
}

func (cli *commandLine) addClass(args []string) error {
	fs := flag.NewFlagSet("class", flag.ContinueOnError)
	fs.SetOutput(cli.out)
	educatorID := fs.Int("educator", 0, "The educator's id.")
	name := fs.String("name", "", "The class name.")
	async := fs.Bool("async", false, "Asynchronous class, merged on creation.")
	small := fs.Bool("small", false, "Small class, merged on creation.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	nc := roster.NewClass{EducatorID: *educatorID, Name: *name, Asynchronous: *async, SmallClass: *small}
	if err := nc.Validate(validate); err != nil {
		fs.Usage()
		return errHelp
	}
	cls, err := cli.rosterSvc.CreateClass(context.Background(), nc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "class %d created, join code %s\n", cls.ID, cls.Code)
	return nil
}

// ignore hides a student or a class from one story's cohorts and exports, or from every story when -story is empty.
func (cli *commandLine) ignore(args []string) error {
	fs := flag.NewFlagSet("ignore", flag.ContinueOnError)
	fs.SetOutput(cli.out)
	id := fs.Int("id", 0, "The student or class id.")
	story := fs.String("story", hubble.StoryName, "The story name, empty for all stories.")
	kind, err := subcommand(fs, args)
	if err != nil {
		return err
	}
	if *id <= 0 {
		fs.Usage()
		return errHelp
	}
	if *story != "" {
		if err := validate.Var(*story, "story_name"); err != nil {
			return err
		}
	}

	ctx := context.Background()
	switch kind {
	case "student":
		err = cli.rosterSvc.IgnoreStudent(ctx, *id, *story)
	case "class":
		err = cli.rosterSvc.IgnoreClass(ctx, *id, *story)
	default:
		fs.Usage()
		return errHelp
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s %d ignored\n", kind, *id)
	return nil
}
