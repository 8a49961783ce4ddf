package domain

// Stat is the numeric torrent status reported by v2 servers.
type Stat int

const (
	StatAdded Stat = iota
	StatGettingInfo
	StatPreload
	StatWorking
	StatClosed
	StatInDB
)

// StatusWorking is the status string both API generations report once the
// torrent metadata is available.
const StatusWorking = "Torrent working"

func (s Stat) String() string {
	switch s {
	case StatAdded:
		return "Torrent added"
	case StatGettingInfo:
		return "Torrent getting info"
	case StatPreload:
		return "Torrent preload"
	case StatWorking:
		return StatusWorking
	case StatClosed:
		return "Torrent closed"
	case StatInDB:
		return "Torrent in db"
	default:
		return "Torrent unknown status"
	}
}
