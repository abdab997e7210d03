package logbook

// Version is the release version of the logbook module.
const Version = "0.3.0"
