package cache

import "fmt"

func JobStateKey(connector, jobID string) string {
	return fmt.Sprintf("job:state:%s:%s", connector, jobID)
}

func TerminalResultKey(connector, jobID string) string {
	return fmt.Sprintf("job:terminal:%s:%s", connector, jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
