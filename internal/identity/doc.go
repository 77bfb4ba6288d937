// Package identity reads the device identity file.
//
// The file is YAML and is written by the commissioning tooling:
//
//	discriminator: 3840
//	vendorId: 65521
//	productId: 32769
//
// Only the setup discriminator is consumed by the Wi-Fi manager, as the AP SSID suffix.
package identity
