package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

type config struct {
	clusterName         string
	advertisedAddress   string
	port                int
	store               string
	etcdEndpoints       []string
	sessionTTL          time.Duration
	statusDirs          []string
	persistStatus       bool
	readOnlyEnabled     bool
	registrationTimeout time.Duration
	reRegisterInterval  time.Duration
	listenAddress       string
}

func parseFlags() config {
	clusterName := flag.String("cluster-name", "", "Name of the bookkeeper cluster")
	advertisedAddress := flag.String("advertised-address", "", "Address this bookie advertises to the cluster (defaults to hostname)")
	port := flag.Int("port", 3181, "Bookie port, part of the advertised identity")
	store := flag.String("store", "etcd", "Metadata store backend: etcd, dynamodb or none")
	etcdEndpoints := flag.String("etcd-endpoints", "127.0.0.1:2379", "CSV of etcd endpoints")
	sessionTTL := flag.Duration("session-ttl", 10*time.Second, "TTL of the etcd session lease holding the registration")
	statusDirs := flag.String("status-dirs", "", "CSV of directories the bookie status is mirrored into")
	persistStatus := flag.Bool("persist-status", false, "Persist the read-only/writable status to the status directories")
	readOnlyEnabled := flag.Bool("readonly-enabled", true, "Allow the bookie to transition to read-only mode instead of shutting down")
	registrationTimeout := flag.Duration("registration-timeout", 10*time.Second, "Timeout for each metadata store call")
	reRegisterInterval := flag.Duration("re-register-interval", 0, "Interval for refreshing the registration (0 disables; only useful for stores without leases)")
	addr := flag.String("listen", ":8080", "Address the admin server listens on")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bookied [options]\n")
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *clusterName == "" {
		log.Fatal("Cluster name must be specified with -cluster-name")
	}

	conf := config{
		clusterName:         *clusterName,
		advertisedAddress:   *advertisedAddress,
		port:                *port,
		store:               *store,
		etcdEndpoints:       strings.Split(*etcdEndpoints, ","),
		sessionTTL:          *sessionTTL,
		persistStatus:       *persistStatus,
		readOnlyEnabled:     *readOnlyEnabled,
		registrationTimeout: *registrationTimeout,
		reRegisterInterval:  *reRegisterInterval,
		listenAddress:       *addr,
	}

	if *statusDirs != "" {
		conf.statusDirs = strings.Split(*statusDirs, ",")
	}
	if conf.persistStatus && len(conf.statusDirs) == 0 {
		log.Fatal("-persist-status requires at least one directory in -status-dirs")
	}

	return conf
}
