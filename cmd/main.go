package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"atcpay/cmd/service"
	"atcpay/src/utils"
)

var Version string

func main() {
	utils.SetupLogger()

	app := cli.NewApp()
	app.Name = "ATC pay"
	app.Usage = "Sell the ATC asset for BTC, ETH and USDT"
	app.Version = Version

	app.Commands = []cli.Command{
		engineCMD,
		sweepCMD,
		reconcileCMD,
		releaseClaimCMD,
		issueTokenCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the payment engine and HTTP API",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Reconciles in-flight orders, follows the bitcoin block feed, runs the expiry sweeper and serves the /atc API`,
	}
	sweepCMD = cli.Command{
		Name:        "sweep",
		Usage:       "expire overdue unpaid orders once",
		Action:      sweepAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run one expiry sweep`,
	}
	reconcileCMD = cli.Command{
		Name:        "reconcile",
		Usage:       "settle unclaimed confirmed orders once",
		Action:      reconcileAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run one reconciliation pass and report stuck settlement claims`,
	}
	releaseClaimCMD = cli.Command{
		Name:      "release-claim",
		Usage:     "clear a stuck settlement claim",
		Action:    releaseClaimAction,
		ArgsUsage: "<order-id>",
		Flags:     []cli.Flag{},
		Description: `Clears the settlement claim of a confirmed order. Check the ledger for a payment
   to the order's holding wallet first: a released order is paid again by the next reconcile.`,
	}
	issueTokenCMD = cli.Command{
		Name:        "issue-token",
		Usage:       "mint an API client token",
		Action:      issueTokenAction,
		ArgsUsage:   "<caller-id>",
		Flags:       []cli.Flag{},
		Description: `Prints a bearer token signed with JWT_KEY`,
	}
)

func engineAction(_ *cli.Context) error {
	logrus.WithField("cmd", "engine").Info("Starting engine CMD")

	svc := &service.Service{}
	if err := svc.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func sweepAction(_ *cli.Context) error {
	logrus.WithField("cmd", "sweep").Info("Starting sweep CMD")
	return (&service.Service{}).Sweep()
}

func reconcileAction(_ *cli.Context) error {
	logrus.WithField("cmd", "reconcile").Info("Starting reconcile CMD")
	return (&service.Service{}).Reconcile()
}

func releaseClaimAction(c *cli.Context) error {
	orderID := c.Args().First()
	logrus.WithFields(logrus.Fields{"cmd": "release-claim", "order_id": orderID}).Warn("Releasing settlement claim")
	return (&service.Service{}).ReleaseClaim(orderID)
}

func issueTokenAction(c *cli.Context) error {
	token, err := (&service.Service{}).IssueToken(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
