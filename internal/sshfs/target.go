package sshfs

import (
	"net/url"
	"strconv"
)

// Target is a parsed `ssh://` working_directory, as recognized by
// cmd/agentd's newWorkspaceFactory (spec.md §4.A: a
// working_directory may be an SSH composite).
type Target struct {
	Host string
	User string
	Port int
	Path string
}

// ParseTarget recognizes working_directory strings of the form
// ssh://user@host:port/remote/path, returning ok=false for anything else
// (a plain local path).
func ParseTarget(workingDirectory string) (Target, bool) {
	u, err := url.Parse(workingDirectory)
	if err != nil || u.Scheme != "ssh" {
		return Target{}, false
	}
	port := 22
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return Target{
		Host: u.Hostname(),
		User: u.User.Username(),
		Port: port,
		Path: u.Path,
	}, true
}
