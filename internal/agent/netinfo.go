package agent

import (
	"net"
	"strings"
)

// virtualIfacePrefixes names interfaces that carry container or VM
// traffic; their addresses are not reachable by game clients.
var virtualIfacePrefixes = []string{"docker", "br-", "bridge", "veth", "virbr", "cni", "flannel", "vbox"}

// LocalAddrs enumerates the host's reachable addresses for the heartbeat
// connection info: non-loopback, non-link-local, non-virtual.
func LocalAddrs() (v4, v6 []string) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isVirtualIface(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP
			if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
				continue
			}
			if ip4 := ip.To4(); ip4 != nil {
				v4 = append(v4, ip4.String())
			} else {
				v6 = append(v6, ip.String())
			}
		}
	}
	return v4, v6
}

func isVirtualIface(name string) bool {
	for _, prefix := range virtualIfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
