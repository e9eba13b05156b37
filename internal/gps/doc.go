// Package gps ingests fixes from a location source and publishes them to
// the shared fix store.
//
// Sources:
// - nmea: a serial GNSS receiver emitting RMC, GGA and GSA
// - gpsd: an upstream gpsd speaking the JSON protocol (TPV, SKY)
// - sim: a deterministic figure-eight track for bench testing
package gps
