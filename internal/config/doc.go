// Package config holds the scan configuration and the .siteaudit file.
//
// The file is YAML with a defaults section and per-target overrides:
//
//	defaults:
//	  disabledTypes: [HTML_IMG_NO_LAZY]
//	targets:
//	  example.com:
//	    depth: 2
//	    crawlDelay: 500ms
//	    headers:
//	      Authorization: Bearer dev
package config
