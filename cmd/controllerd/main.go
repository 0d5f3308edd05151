// Package main runs the controller daemon: it loads a config, registers the
// configured joints, builds the configured controllers, and drives them from
// the manager's control tick until signaled to stop.
package main

import (
	"context"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/fieldbotics/controllers/config"
	"github.com/fieldbotics/controllers/controller"
	_ "github.com/fieldbotics/controllers/controller/diffdrive"
	_ "github.com/fieldbotics/controllers/controller/jointtraj"
	"github.com/fieldbotics/controllers/joint/fake"
)

var logger = golog.NewDevelopmentLogger("controllerd")

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"config,required,usage=path to the daemon config file"`
}

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := config.Read(argsParsed.ConfigFile)
	if err != nil {
		return err
	}

	mgr := controller.NewManager(controller.ManagerConfig{UpdateRate: cfg.UpdateRate}, logger)
	defer func() {
		err = multierr.Combine(err, mgr.Close(ctx))
	}()

	for _, jc := range cfg.Joints {
		if err := mgr.RegisterJoint(fake.New(jc)); err != nil {
			return err
		}
	}

	for _, cc := range cfg.Controllers {
		c, err := controller.Build(cc, mgr, logger.Named(cc.Name))
		if err != nil {
			return err
		}
		if err := mgr.Add(c); err != nil {
			return err
		}
		logger.Infow("loaded controller", "name", cc.Name, "type", cc.Type)
	}

	logger.Infow("controller daemon running", "joints", len(cfg.Joints), "controllers", len(cfg.Controllers))
	return goutils.FilterOutError(mgr.Run(ctx), context.Canceled)
}
