package main

import (
	"strings"

	"student_25_hbbft/simulation"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "HBSIM"

const (
	NodesKey     = "nodes"
	FaultyKey    = "faulty"
	ByzantineKey = "byzantine"
	BehaviourKey = "behaviour"
	EpochsKey    = "epochs"
	BatchSizeKey = "batch-size"
	TransportKey = "transport"
	TimeoutKey   = "timeout"
	ConfigKey    = "config"
	MetricsKey   = "metrics"
)

func AddFlags(flags *pflag.FlagSet) {
	def := simulation.DefaultConfig()
	flags.Int(NodesKey, def.Nodes, "Number of nodes")
	flags.Int(FaultyKey, def.Faulty, "Number of faults tolerated, the largest possible if negative")
	flags.Int(ByzantineKey, def.Byzantine, "Number of byzantine nodes, at most the number of faults")
	flags.String(BehaviourKey, string(def.Behaviour), "Behaviour of the byzantine nodes: silent, junk, liar, garbage or replay")
	flags.Int(EpochsKey, def.Epochs, "Number of epochs to run")
	flags.Int(BatchSizeKey, def.BatchSize, "Number of transactions proposed by each node per epoch")
	flags.String(TransportKey, def.Transport, "Network between the nodes: fake or tcp")
	flags.Duration(TimeoutKey, def.Timeout, "Deadline of each epoch, none if zero")
	flags.String(ConfigKey, "", "Configuration file, flags and "+envPrefix+"_* variables take precedence")
	flags.String(MetricsKey, "", "Address to serve Prometheus metrics on while running")
}

// ParseConfig reads the configuration from the flags, the environment and
// the optional configuration file, in that order of precedence
func ParseConfig(flags *pflag.FlagSet) (simulation.Config, *viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	err := v.BindPFlags(flags)
	if err != nil {
		return simulation.Config{}, nil, err
	}

	if file := v.GetString(ConfigKey); file != "" {
		v.SetConfigFile(file)
		err = v.ReadInConfig()
		if err != nil {
			return simulation.Config{}, nil, err
		}
	}

	conf := simulation.DefaultConfig()
	err = v.Unmarshal(&conf)
	if err != nil {
		return simulation.Config{}, nil, err
	}
	return conf, v, nil
}
