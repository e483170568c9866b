package main

import (
	"flag"
	"log"

	"github.com/robotalks/prop.go/pkg/fleet"
)

func init() {
	fleet.SetupFlags()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf := fleet.NewConfig()
	client := conf.MustNewClient()
	if err := client.Connect(); err != nil {
		log.Fatalln(err)
	}
	defer client.Close()

	deviceID := conf.DeviceID
	if deviceID == "" {
		deviceID = "+"
	}
	err := client.Watch(deviceID, func(msg fleet.Message) {
		log.Printf("%s/%s: %s", msg.DeviceID, msg.SubTopic, msg.Payload)
	})
	if err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
