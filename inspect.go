package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/epalmerini/rabbitlog/internal/config"
	"github.com/epalmerini/rabbitlog/internal/rabbitmq"
)

func inspect(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	client, err := rabbitmq.NewManagementClient(cfg.Broker)
	if err != nil {
		return err
	}
	report, err := client.InspectTopology(c.Context, cfg.Broker.VHost, cfg.Topology)
	if err != nil {
		return fmt.Errorf("inspect topology: %w", err)
	}

	printReport(os.Stdout, cfg.Topology, report)
	return nil
}

func printReport(w io.Writer, t config.Topology, r *rabbitmq.TopologyReport) {
	fmt.Fprintf(w, "exchange  %s (type=%s durable=%t)\n", r.Exchange.Name, r.Exchange.Type, r.Exchange.Durable)
	fmt.Fprintf(w, "queue     %s (durable=%t messages=%d consumers=%d)\n",
		r.Queue.Name, r.Queue.Durable, r.Queue.Messages, r.Queue.Consumers)

	if len(r.Bindings) == 0 {
		fmt.Fprintf(w, "bindings  none from %s to %s\n", t.Exchange, t.Queue)
		return
	}
	fmt.Fprintf(w, "bindings  %d\n", len(r.Bindings))
	for _, b := range r.Bindings {
		fmt.Fprintf(w, "  %s -> %s (key=%q)\n", b.Source, b.Destination, b.RoutingKey)
	}
}
