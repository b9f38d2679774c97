package main

import "github.com/urfave/cli/v2"

var FlagLogLevel = &cli.StringFlag{
	Name:    "log-level",
	EnvVars: []string{"LOG_LEVEL"},
	Value:   "info",
}

var FlagLogWriter = &cli.StringFlag{
	Name:    "log-writer",
	EnvVars: []string{"LOG_WRITER"},
	Value:   "console",
}

var FlagMQTTUrl = &cli.StringFlag{
	Name:     "mqtt-url",
	Usage:    "tcp://broker:port",
	EnvVars:  []string{"MQTT_URL"},
	Required: true,
}

var FlagMQTTClientID = &cli.StringFlag{
	Name:    "mqtt-client-id",
	EnvVars: []string{"MQTT_CLIENT_ID"},
	Value:   "edge-node-example",
}

var FlagMQTTUsername = &cli.StringFlag{
	Name:    "mqtt-username",
	EnvVars: []string{"MQTT_USERNAME"},
}

var FlagMQTTPassword = &cli.StringFlag{
	Name:    "mqtt-password",
	EnvVars: []string{"MQTT_PASSWORD"},
}

var FlagGroupID = &cli.StringFlag{
	Name:    "group-id",
	EnvVars: []string{"SPARKPLUG_GROUP_ID"},
	Value:   "Example",
}

var FlagEdgeNodeID = &cli.StringFlag{
	Name:    "edge-node-id",
	EnvVars: []string{"SPARKPLUG_EDGE_NODE_ID"},
	Value:   "Gateway01",
}

var FlagPrimaryHostID = &cli.StringFlag{
	Name:    "primary-host-id",
	Usage:   "primary host application id to gate births on; empty disables gating",
	EnvVars: []string{"SPARKPLUG_PRIMARY_HOST_ID"},
}

var FlagPublishInterval = &cli.DurationFlag{
	Name:    "publish-interval",
	EnvVars: []string{"SPARKPLUG_PUBLISH_INTERVAL"},
	Value:   defaultPublishInterval,
}
