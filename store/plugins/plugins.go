package plugins

import (
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/store/bbolt"
	"github.com/jrife/cfstore/store/memory"
)

var plugins []store.Plugin

func init() {
	plugins = append(plugins, memory.Plugins()...)
	plugins = append(plugins, bbolt.Plugins()...)
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) store.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []store.Plugin {
	return plugins
}
