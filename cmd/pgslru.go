package cmd

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/hashicorp/hcl"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leftmike/pgslru/storage/kv"
	"github.com/leftmike/pgslru/storage/pagestore"
)

var (
	pgslruCmd = &cobra.Command{
		Use:   "pgslru",
		Short: "Transaction status logs of a PostgreSQL compatible server",
		Long: "Pgslru reads, writes, replays, and truncates the commit log, the CSN log, and " +
			"the multixact logs of a PostgreSQL compatible server.",
		PersistentPreRunE: pgslruPreRun,
		PersistentPostRun: pgslruPostRun,
		SilenceUsage:      true,
	}

	logFile   = "pgslru.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "pgslru.hcl"
	noConfig   = false

	backend = "pebble"
	dataDir = "testdata"

	cfgVars   = map[string]*pflag.Flag{}
	cfg       = map[string]interface{}{}
	usedFlags = map[string]struct{}{}
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := pgslruCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	cfgVars["log-file"] = fs.Lookup("log-file")

	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	cfgVars["log-level"] = fs.Lookup("log-level")

	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")
}

func initStoreFlags(fs *pflag.FlagSet) {
	fs.StringVar(&backend, "store", backend, "`backend` to keep pages in: memory, badger, "+
		"bbolt, or pebble")
	cfgVars["store"] = fs.Lookup("store")

	fs.StringVar(&dataDir, "data", dataDir, "`directory` containing the pages")
	cfgVars["data"] = fs.Lookup("data")
}

func Execute() error {
	return pgslruCmd.Execute()
}

func pgslruPreRun(cmd *cobra.Command, args []string) error {
	cmd.Flags().Visit(
		func(flg *pflag.Flag) {
			usedFlags[flg.Name] = struct{}{}
		})

	if configFile != "" && !noConfig {
		err := loadConfig()
		if err != nil && !(os.IsNotExist(err) && !isUsed("config-file")) {
			return fmt.Errorf("pgslru: %s", err)
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("pgslru: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("pgslru: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("pgslru starting")
	return nil
}

func pgslruPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("pgslru done")

	if logWriter != nil {
		logWriter.Close()
	}
}

func isUsed(name string) bool {
	_, ok := usedFlags[name]
	return ok
}

func loadConfig() error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		return err
	}

	err = hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}

	for name, val := range cfg {
		flg, ok := cfgVars[name]
		if !ok {
			return fmt.Errorf("%s is not a config variable", name)
		}
		if flg == nil || isUsed(flg.Name) {
			continue
		}
		err := flg.Value.Set(fmt.Sprintf("%v", val))
		if err != nil {
			return fmt.Errorf("%s: %s", name, err)
		}
	}

	return nil
}

func openStore() (*pagestore.Store, error) {
	kvst, err := kv.Open(backend, dataDir, log.StandardLogger())
	if err != nil {
		return nil, fmt.Errorf("pgslru: %s", err)
	}

	log.WithFields(log.Fields{
		"store": backend,
		"data":  dataDir,
	}).Info("opened page store")
	return pagestore.NewStore(kvst), nil
}
