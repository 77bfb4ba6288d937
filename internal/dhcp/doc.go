// Package dhcp launches a DHCP client for the station interface after provisioning.
package dhcp
