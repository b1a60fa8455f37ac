package cmd

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/leftmike/pgslru/server"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Serve the pages over the PostgreSQL wire protocol",
		RunE:  startRun,
	}

	proto3Host     = "localhost"
	proto3Port     = "5432"
	sshServer      = false
	sshPort        = "localhost:8241"
	authorizedKeys = ""
	hostKeys       = []string{"id_rsa"}
)

func init() {
	fs := startCmd.Flags()
	initStoreFlags(fs)
	initCommandFlags(fs)

	fs.StringVar(&proto3Host, "host", proto3Host,
		"`host` used to serve PostgreSQL wire protocol v3")
	cfgVars["host"] = fs.Lookup("host")

	fs.StringVarP(&proto3Port, "port", "p", proto3Port,
		"`port` used to serve PostgreSQL wire protocol v3")
	cfgVars["port"] = fs.Lookup("port")

	fs.BoolVar(&sshServer, "ssh", sshServer, "`flag` to control serving SSH")
	cfgVars["ssh"] = fs.Lookup("ssh")

	fs.StringVar(&sshPort, "ssh-port", sshPort, "`port` used to serve SSH")
	cfgVars["ssh-port"] = fs.Lookup("ssh-port")

	fs.StringVar(&authorizedKeys, "ssh-authorized-keys", authorizedKeys,
		"`file` containing authorized ssh keys")
	cfgVars["ssh-authorized-keys"] = fs.Lookup("ssh-authorized-keys")

	fs.StringSliceVar(&hostKeys, "ssh-host-key", hostKeys,
		"`file` containing a ssh host key; multiple allowed")
	cfgVars["ssh-host-keys"] = fs.Lookup("ssh-host-key")

	cfgVars["accounts"] = nil

	pgslruCmd.AddCommand(startCmd)
}

func userAccounts() map[string]string {
	var accounts []map[string]interface{}
	switch val := cfg["accounts"].(type) {
	case []map[string]interface{}:
		accounts = val
	case []interface{}:
		for _, obj := range val {
			account, ok := obj.(map[string]interface{})
			if !ok {
				return nil
			}
			accounts = append(accounts, account)
		}
	default:
		return nil
	}

	userPasswords := map[string]string{}
	for _, account := range accounts {
		user, ok := account["user"].(string)
		if !ok {
			return nil
		}
		password, ok := account["password"].(string)
		if !ok {
			return nil
		}
		userPasswords[user] = password
	}

	return userPasswords
}

func makeSSHConfig() (server.SSHConfig, error) {
	sshCfg := server.SSHConfig{
		Address: sshPort,
	}

	for _, hostKey := range hostKeys {
		keyBytes, err := ioutil.ReadFile(hostKey)
		if err != nil {
			return sshCfg, fmt.Errorf("pgslru: host keys: %s", err)
		}
		sshCfg.HostKeysBytes = append(sshCfg.HostKeysBytes, keyBytes)
	}

	if authorizedKeys != "" {
		var err error
		sshCfg.AuthorizedBytes, err = ioutil.ReadFile(authorizedKeys)
		if err != nil {
			return sshCfg, fmt.Errorf("pgslru: authorized keys: %s", err)
		}
	}

	userPasswords := userAccounts()
	if len(userPasswords) > 0 {
		sshCfg.CheckPassword = func(user, password string) error {
			pw, ok := userPasswords[user]
			if !ok {
				return fmt.Errorf("user %s not found", user)
			}
			if password != pw {
				return fmt.Errorf("bad password for user %s", user)
			}
			return nil
		}
	}

	return sshCfg, nil
}

func startRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	err = runCommands(st, args)
	if err != nil {
		return err
	}

	svr := &server.Server{
		Store: st,
	}

	p3Cfg := server.Proto3Config{
		Address: fmt.Sprintf("%s:%s", proto3Host, proto3Port),
	}

	go func() {
		fmt.Fprintf(os.Stderr, "pgslru: %s\n", svr.ListenAndServeProto3(p3Cfg))
	}()

	if sshServer {
		sshCfg, err := makeSSHConfig()
		if err != nil {
			return err
		}

		go func() {
			fmt.Fprintf(os.Stderr, "pgslru: %s\n", svr.ListenAndServeSSH(sshCfg))
		}()
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	fmt.Println("pgslru: waiting for ^C to shutdown")
	<-ch
	go func() {
		<-ch
		os.Exit(0)
	}()

	fmt.Println("pgslru: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return svr.Shutdown(ctx)
}
