package server

import "net"

// LocalHosts returns localhost plus the first non-loopback IPv4 address, the
// hosts a CI machine's page server is usually reached by.
func LocalHosts() []string {
	hosts := []string{"localhost", "127.0.0.1"}

	interfaces, err := net.Interfaces()
	if err != nil {
		return hosts
	}
	for _, i := range interfaces {
		if i.Flags&net.FlagLoopback != 0 || i.Flags&net.FlagUp == 0 || i.Flags&net.FlagPointToPoint != 0 {
			continue
		}
		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				return append(hosts, ipnet.IP.String())
			}
		}
	}
	return hosts
}
