// Package config loads the Z-Wave service configuration.
//
// Load applies values in order: built-in defaults, the YAML file, then
// GRAYLOGIC_* environment variables. The result is validated before it is
// returned, and all problems are reported together.
//
// Node mappings are not part of this file. They live in the bridge config
// named by zwave.config_file and are loaded by the zwave bridge package.
//
// Secrets (mqtt.auth.password, influxdb.token) are best supplied through
// GRAYLOGIC_MQTT_PASSWORD and GRAYLOGIC_INFLUXDB_TOKEN.
package config
