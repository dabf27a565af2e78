package udev

import "github.com/pilebones/go-udev/netlink"

// GenRuleForBlock matches every node of the block subsystem
func GenRuleForBlock() netlink.Matcher {
	return &netlink.RuleDefinitions{
		Rules: []netlink.RuleDefinition{
			{
				Env: map[string]string{
					"SUBSYSTEM": "block",
				},
			},
		},
	}
}
