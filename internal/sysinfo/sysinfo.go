// Package sysinfo captures an immutable snapshot of host and environment
// facts that is attached to every asset registration.
package sysinfo

import (
	"bufio"
	"os"
	"os/user"
	"runtime"
	"strings"
)

// Snapshot is a point-in-time description of the registering host.
type Snapshot struct {
	ServerName      string `json:"server_name"`
	HostName        string `json:"host_name"`
	Machine         string `json:"machine_name"`
	User            string `json:"logged_user_name"`
	OS              string `json:"operating_system"`
	GoVersion       string `json:"go_version"`
	Environment     string `json:"environment"`
	ProjectName     string `json:"project_name"`
	ContainerID     string `json:"container_id"`
	IsContainerized bool   `json:"is_containerized"`
}

// Map returns the snapshot as a JSON-compatible map for merging into
// asset metadata.
func (s Snapshot) Map() map[string]any {
	return map[string]any{
		"server_name":      s.ServerName,
		"host_name":        s.HostName,
		"machine_name":     s.Machine,
		"logged_user_name": s.User,
		"operating_system": s.OS,
		"go_version":       s.GoVersion,
		"environment":      s.Environment,
		"project_name":     s.ProjectName,
		"container_id":     s.ContainerID,
		"is_containerized": s.IsContainerized,
	}
}

// Options overrides how the snapshot is gathered. Zero values use the real
// process environment.
type Options struct {
	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string
	// Environment and ProjectName take precedence over the environment
	// variables when set (typically from configuration).
	Environment string
	ProjectName string
	// DockerEnvPath and CgroupPath locate the containerization markers.
	DockerEnvPath string
	CgroupPath    string
}

// Collect gathers a Snapshot. It never fails: facts that cannot be read
// are reported as "unknown".
func Collect(opts Options) Snapshot {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	dockerEnv := opts.DockerEnvPath
	if dockerEnv == "" {
		dockerEnv = "/.dockerenv"
	}
	cgroup := opts.CgroupPath
	if cgroup == "" {
		cgroup = "/proc/self/cgroup"
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	server := getenv("HOSTNAME")
	if server == "" {
		server = host
	}

	userName := "unknown"
	if u, err := user.Current(); err == nil {
		userName = u.Username
	}

	containerized := fileExists(dockerEnv)
	containerID := "unknown"
	if containerized {
		containerID = dockerContainerID(cgroup)
	}

	env := opts.Environment
	if env == "" {
		env = EnvironmentName(getenv)
	}
	project := opts.ProjectName
	if project == "" {
		project = ProjectName(getenv)
	}

	return Snapshot{
		ServerName:      server,
		HostName:        host,
		Machine:         runtime.GOARCH,
		User:            userName,
		OS:              runtime.GOOS,
		GoVersion:       runtime.Version(),
		Environment:     env,
		ProjectName:     project,
		ContainerID:     containerID,
		IsContainerized: containerized,
	}
}

// EnvironmentName resolves the deployment environment from ENVIRONMENT,
// ENV or DEPLOYMENT_ENV, lowercased, defaulting to "development".
func EnvironmentName(getenv func(string) string) string {
	for _, k := range []string{"ENVIRONMENT", "ENV", "DEPLOYMENT_ENV"} {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return strings.ToLower(v)
		}
	}
	return "development"
}

// ProjectName resolves the project from PROJECT_NAME, APP_NAME or
// SERVICE_NAME, defaulting to "assetgov".
func ProjectName(getenv func(string) string) string {
	for _, k := range []string{"PROJECT_NAME", "APP_NAME", "SERVICE_NAME"} {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
	}
	return "assetgov"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// dockerContainerID returns the short container id from the first cgroup
// line mentioning docker.
func dockerContainerID(cgroupPath string) string {
	f, err := os.Open(cgroupPath)
	if err != nil {
		return "unknown"
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.Contains(line, "docker") {
			continue
		}
		id := line[strings.LastIndex(line, "/")+1:]
		id = strings.TrimSuffix(strings.TrimPrefix(id, "docker-"), ".scope")
		if len(id) > 12 {
			id = id[:12]
		}
		if id != "" {
			return id
		}
	}
	return "unknown"
}
