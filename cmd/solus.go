package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/solusnoir/solus/config"
	"github.com/solusnoir/solus/server"
)

func main() {
	log.SetPrefix("solus: ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile | log.Lmsgprefix)

	configFile := flag.String("config", "config.yml", "Path to the configuration file (i.e., /etc/solus.yaml)")
	flag.Parse()

	if len(strings.Trim(*configFile, " ")) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	log.Println("loading configuration...")
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Printf("failed to load configuration: %v", err)
		os.Exit(1)
	}

	log.Println("starting http server...")
	if err := server.StartServer(cfg); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
