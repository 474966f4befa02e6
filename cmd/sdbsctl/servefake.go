package main

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sdstack/sdbs/fakesheep"
)

var serveFakeCmd = &cobra.Command{
	Use:   "serve-fake",
	Short: "run an in-memory Sheepdog stand-in for local testing",
	RunE:  serveFakeAction,
}

func init() {
	serveFakeCmd.Flags().String("listen", "127.0.0.1:7000", "address to listen on")
	serveFakeCmd.Flags().Bool("cache", false, "pretend the cluster has an object cache")
	viper.BindPFlag("serve-fake.listen", serveFakeCmd.Flags().Lookup("listen"))
	viper.BindPFlag("serve-fake.cache", serveFakeCmd.Flags().Lookup("cache"))
	rootCmd.AddCommand(serveFakeCmd)
}

func serveFakeAction(cmd *cobra.Command, args []string) error {
	if viper.GetBool("debug") {
		go func() {
			log.Println(http.ListenAndServe("localhost:6060", nil))
		}()
	}

	listen := viper.GetString("serve-fake.listen")
	cacheOn := viper.GetBool("serve-fake.cache")

	s := fakesheep.NewServer(cacheOn)
	addr, err := s.Listen(listen)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("serving a fake Sheepdog cluster on %s (cache=%v)\n", addr, cacheOn)
	s.Serve()
	return nil
}
