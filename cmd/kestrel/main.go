package main

import (
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	httpfrontend "github.com/kestrelbt/kestrel/frontend/http"
	"github.com/kestrelbt/kestrel/pkg/log"
	"github.com/kestrelbt/kestrel/pkg/metrics"
	"github.com/kestrelbt/kestrel/pkg/stop"
	"github.com/kestrelbt/kestrel/session"

	// Imported to register the memory storage driver.
	_ "github.com/kestrelbt/kestrel/storage/memory"
)

// ConfigFile represents the layout of the YAML configuration file.
type ConfigFile struct {
	Kestrel struct {
		PrometheusAddr string              `yaml:"prometheus_addr"`
		HTTPConfig     httpfrontend.Config `yaml:"http"`
		session.Config `yaml:",inline"`
	} `yaml:"kestrel"`
}

// ParseConfigFile returns a new ConfigFile given the path to a YAML
// configuration file.
//
// It supports relative and absolute paths and environment variables.
func ParseConfigFile(path string) (*ConfigFile, error) {
	if path == "" {
		return nil, errors.New("no config path specified")
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	contents, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var cfgFile ConfigFile
	err = yaml.Unmarshal(contents, &cfgFile)
	if err != nil {
		return nil, err
	}

	return &cfgFile, nil
}

// Run runs the registry daemon with the given configuration until a shutdown
// signal arrives.
func Run(configFilePath string) error {
	configFile, err := ParseConfigFile(configFilePath)
	if err != nil {
		return errors.Wrap(err, "failed to read config")
	}
	cfg := configFile.Kestrel

	stopGroup := stop.NewGroup()

	if cfg.PrometheusAddr != "" {
		stopGroup.Add(metrics.NewServer(cfg.PrometheusAddr))
		log.Info("serving prometheus metrics", log.Fields{"addr": cfg.PrometheusAddr})
	}

	s, err := session.New(cfg.Config)
	if err != nil {
		return err
	}
	stopGroup.Add(s)

	if cfg.HTTPConfig.Addr != "" {
		fe := httpfrontend.NewFrontend(s, cfg.HTTPConfig)
		go func() {
			if err := fe.ListenAndServe(); err != nil {
				log.Fatal("failed to serve inspection API", log.Err(err))
			}
		}()
		stopGroup.Add(fe)
		log.Info("serving inspection API", log.Fields{"addr": cfg.HTTPConfig.Addr})
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Info("shutting down")
	for _, err := range stopGroup.Stop().Wait() {
		log.Error("error shutting down", log.Err(err))
	}

	return nil
}

func main() {
	var configFilePath string
	var debug bool
	var jsonLog bool

	rootCmd := &cobra.Command{
		Use:   "kestrel",
		Short: "BitTorrent client session registry",
		Long:  "The coordination core of the kestrel BitTorrent client: tracks active torrents and peers, and serves a read-only inspection API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				log.SetDebug(true)
				log.Debug("debug logging enabled")
			}
			if jsonLog {
				log.SetFormatter(&logrus.JSONFormatter{})
			}

			return Run(configFilePath)
		},
	}

	rootCmd.Flags().StringVar(&configFilePath, "config", "/etc/kestrel.yaml", "location of configuration file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&jsonLog, "json", false, "enable json logging")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal("failed to run", log.Err(err))
	}
}
