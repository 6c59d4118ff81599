package common

// AuthQueryParam is the query parameter carrying the stream key in publish
// URLs, e.g. rtmp://host/stream/name?auth=KEY.
const AuthQueryParam = "auth"

// StateKey names the persisted state object in key-value and object backends.
const StateKey = "stream_auth"

// EnvPrefix prefixes every environment variable read by the config loader.
const EnvPrefix = "RTMP_AUTH_"
