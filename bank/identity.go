package bank

import "net"

// ResolveBankCode determines the outward IPv4 address a node advertises
// as its bank code. It opens a UDP socket toward a public resolver and
// inspects the local endpoint the kernel picked; no packet is sent.
// Any failure falls back to loopback.
func ResolveBankCode() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		if ip := addr.IP.To4(); ip != nil {
			return ip.String()
		}
	}
	return "127.0.0.1"
}
