// Package audio holds the PCM plumbing shared by the capture and playback
// workers: frames, device interfaces, format conversion and decoding.
//
// Devices come in two flavours. Generated sources, the looping Ogg Opus file
// source and discarding sinks work everywhere and are what headless
// deployments and tests use. Real hardware is reached through
// pion/mediadevices (microphone) and malgo (speaker); both need cgo on Linux
// and report ErrDeviceUnavailable elsewhere.
//
// All PCM is signed 16-bit, interleaved when stereo.
package audio
