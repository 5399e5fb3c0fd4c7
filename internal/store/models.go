package store

// Credentials holds the WiFi station credentials.
type Credentials struct {
	SSID        string
	Password    string
	Provisioned bool
}

// Settings holds the persisted device settings.
type Settings struct {
	Mode        int // 0=OFF, 1=ON
	IntervalSec int // data publish interval in seconds
}
