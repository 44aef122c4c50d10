package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func bindFlag(v *viper.Viper, key string, fl *pflag.Flag) {
	if err := v.BindPFlag(key, fl); err != nil {
		panic(err)
	}
}
