package config

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/denisbrodbeck/machineid"

	"mortar/lib/errco"
	"mortar/lib/opsys"
)

// CFLAG is replaced by a NULL char in the instance file to prevent accidental copies
const CFLAG string = "/*\\"

var (
	instanceFile string = "mortar.instance" // instanceFile is the instance file path

	InstanceID string // InstanceID identifies this mortar instance (reported by health and startup banner)
)

// instanceV is used to read the instance file version
type instanceV struct {
	V int `json:"V"`
}

// instanceV0 is the instance file content (version 0)
type instanceV0 struct {
	V        int    `json:"V"`
	CFlag    string `json:"CFlag"`
	MId      string `json:"MId"`      // machine id
	HostName string `json:"HostName"` // instance host name
	FId      uint64 `json:"FId"`      // instance file id
	ID       string `json:"ID"`       // mortar instance id
	CheckSum string `json:"CheckSum"`
}

// LoadInstanceID returns the mortar instance id. A new instance is created if not healthy/not existent.
func LoadInstanceID() string {
	// if instance does not exist, generate a new one
	_, err := os.Stat(instanceFile)
	if errors.Is(err, os.ErrNotExist) {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance file does not exist")
		return newInstance("")
	}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "instance file exists")

	instanceData, err := os.ReadFile(instanceFile)
	if err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance file can't be read")
		return newInstance("")
	}

	// replace NULL char with CFLAG to prevent JSON format error and wrong health check
	instanceData = bytes.ReplaceAll(instanceData, []byte{0}, []byte(CFLAG))

	// extract instance version
	iv := &instanceV{}
	err = json.Unmarshal(instanceData, iv)
	if err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance file does not contain version or not json formatted")
		return newInstance("")
	}

	switch iv.V {
	case 0:
		i := &instanceV0{}
		err = json.Unmarshal(instanceData, i)
		if err != nil {
			errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance file not json formatted")
			return newInstance("")
		}

		// instance health check
		if logMrt := i.okV0(); logMrt != nil {
			logMrt.Log(true)
			// keep the id, refresh the rest
			return newInstance(i.ID)
		}

		errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "instance loaded is healthy")

		return i.ID

	default:
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance loaded is unsupported (version %d)", iv.V)
		return newInstance("")
	}
}

// newInstance generates a new instance file and returns its id.
// idRecord is reused when it looks like a valid id.
func newInstance(idRecord string) string {
	i := &instanceV0{}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "generating new instance")

	// touch instance file (to know in advance file id)
	f, err := os.Create(instanceFile)
	if err != nil {
		// instance can't be persisted: use a volatile id
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
		return genID()
	}
	_ = f.Close()

	i.V = 0
	i.CFlag = CFLAG
	i.MId, err = machineid.ProtectedID("mortar")
	if err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
	}
	i.HostName, err = os.Hostname()
	if err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
	}
	i.FId, err = opsys.FileId(instanceFile)
	if err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
	}

	i.ID = idRecord
	if len(i.ID) != 40 {
		i.ID = genID()
	}

	i.CheckSum = i.calcCheckSumV0()

	instanceData, err := json.Marshal(i)
	if err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
		return i.ID
	}

	// replace CFLAG with NULL char to prevent accidental copy of the instance file
	instanceData = bytes.ReplaceAll(instanceData, []byte(CFLAG), []byte{0})

	err = os.WriteFile(instanceFile, instanceData, 0644)
	if err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
	}

	return i.ID
}

// okV0 verifies that the instance V0 belongs to this machine, host and file
func (i *instanceV0) okV0() *errco.MrtLog {
	if checksum := i.calcCheckSumV0(); i.CheckSum != checksum {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance verification: wrong checksum (inst %s, file %s)", i.CheckSum, checksum)
	}

	if mId, err := machineid.ProtectedID("mortar"); err != nil {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
	} else if i.MId != mId {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance verification: wrong machine id")
	}

	if hostName, err := os.Hostname(); err != nil {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
	} else if i.HostName != hostName {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance verification: wrong hostname (inst %s, host %s)", i.HostName, hostName)
	}

	if fId, err := opsys.FileId(instanceFile); err != nil {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, err.Error())
	} else if i.FId != fId {
		return errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CONFIG_ID, "instance verification: wrong file id (inst %d, file %d)", i.FId, fId)
	}

	return nil
}

// calcCheckSumV0 calculates instance V0 checksum.
// CheckSum field is excluded from computation.
func (i *instanceV0) calcCheckSumV0() string {
	hasher := sha1.New()

	v := reflect.ValueOf(*i)
	t := v.Type()
	o := ""
	for n := 0; n < v.NumField(); n++ {
		if t.Field(n).Name == "CheckSum" {
			continue
		}
		o += fmt.Sprintf("%v", v.Field(n))
	}

	hasher.Write([]byte(o))
	return hex.EncodeToString(hasher.Sum(nil))
}

// genID generates a random 40 chars hex id
func genID() string {
	key := make([]byte, 64)
	_, _ = rand.Read(key)
	hasher := sha1.New()
	hasher.Write(key)
	return hex.EncodeToString(hasher.Sum(nil))
}
