package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
)

// secretsDirMode forbids listing the vault directory's contents; a
// process without the secret's exact name cannot discover what secrets
// exist.
const secretsDirMode = 0o300

const secretFileMode = 0o600

// secretWriteMu serializes umask mutation across concurrent sandbox
// builds within one process. syscall.Umask is process-global, so two
// goroutines racing to scope it to 0 would otherwise clobber each
// other's restore.
var secretWriteMu sync.Mutex

// writeSecretsVault creates dir with secretsDirMode and writes each
// secret inside it with secretFileMode, using O_CREATE|O_EXCL to close
// the TOCTOU window where an attacker pre-creates the file with looser
// permissions.
func writeSecretsVault(dir string, secrets map[string][]byte) error {
	if err := os.MkdirAll(dir, secretsDirMode); err != nil {
		return classifyFSError("secrets vault mkdir", err)
	}
	if err := os.Chmod(dir, secretsDirMode); err != nil {
		return classifyFSError("secrets vault chmod", err)
	}

	secretWriteMu.Lock()
	defer secretWriteMu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prev := syscall.Umask(0)
	defer syscall.Umask(prev)

	for name, data := range secrets {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, secretFileMode)
		if err != nil {
			return classifyFSError(fmt.Sprintf("secret %s open", name), err)
		}
		_, writeErr := f.Write(data)
		closeErr := f.Close()
		if writeErr != nil {
			return classifyFSError(fmt.Sprintf("secret %s write", name), writeErr)
		}
		if closeErr != nil {
			return classifyFSError(fmt.Sprintf("secret %s close", name), closeErr)
		}
	}
	return nil
}

func classifyFSError(step string, err error) error {
	if os.IsPermission(err) {
		return &PermissionError{Step: step, Err: err}
	}
	return &BuildError{Step: step, Err: err}
}
