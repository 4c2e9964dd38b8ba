package main

import (
	"fmt"
	"os"
	"time"

	logger "github.com/sirupsen/logrus"

	"atcpay/cmd/service"
	"atcpay/src/utils"
)

var APP_NAME = os.Getenv("APP_NAME")

func main() {
	utils.SetupLogger()
	defer handlePanic()

	svc := &service.Service{}
	if err := svc.Start(); err != nil {
		logger.WithError(err).Fatal("Service stopped")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
