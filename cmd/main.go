package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradecore/cmd/engine"
	"tradecore/cmd/keys"
	"tradecore/cmd/reconcile"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "tradecore CMD"
	app.Usage = "The tradecore command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		reconcileCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the trading engine and HTTP API",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the trading engine`,
	}
	reconcileCMD = cli.Command{
		Name:        "reconcile",
		Usage:       "run a one-shot reconciliation sweep",
		Action:      reconcileAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Detect missing orders and orphaned executions`,
	}
	keysCMD = cli.Command{
		Name:        "keys",
		Usage:       "manage encrypted exchange credentials",
		Action:      keysAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Interactive credentials CLI`,
	}
)

func serverAction(_ *cli.Context) error {
	logrus.Info("Starting engine CMD")

	e := &engine.Engine{}
	if err := e.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func reconcileAction(_ *cli.Context) error {
	logrus.Info("Starting reconcile CMD")

	r := &reconcile.Reconcile{}
	if err := r.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func keysAction(_ *cli.Context) error {
	logrus.Info("Starting keys CMD")

	k := &keys.Keys{}
	if err := k.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}
