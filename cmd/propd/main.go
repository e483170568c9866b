package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/prop.go/pkg/config"
	fx "github.com/robotalks/prop.go/pkg/framework"
	"github.com/robotalks/prop.go/pkg/prop"
)

func init() {
	config.SetupFlags()
	setupDiagnosticFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := config.Resolve()
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	dev, err := prop.New(conf, newDiagnostic())
	if err != nil {
		glog.Exitf("setup: %v", err)
	}
	if err := fx.NewRunner("propd").HandleSignals().Go(dev).Wait(); err != nil {
		glog.Exit(err)
	}
}
