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
	Value:   "host-application-example",
}

var FlagMQTTUsername = &cli.StringFlag{
	Name:    "mqtt-username",
	EnvVars: []string{"MQTT_USERNAME"},
}

var FlagMQTTPassword = &cli.StringFlag{
	Name:    "mqtt-password",
	EnvVars: []string{"MQTT_PASSWORD"},
}

var FlagHostID = &cli.StringFlag{
	Name:    "host-id",
	EnvVars: []string{"SPARKPLUG_HOST_ID"},
	Value:   "SCADA01",
}

var FlagValidateSequence = &cli.BoolFlag{
	Name:    "validate-sequence",
	EnvVars: []string{"SPARKPLUG_VALIDATE_SEQUENCE"},
	Value:   true,
}
