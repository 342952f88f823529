// Package gpio routes the hopping control signals to device pins and
// services the device's general purpose interrupt.
package gpio
