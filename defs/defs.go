// Package defs holds the types and constants shared by every layer of
// the kernel core: error codes, process/thread identifiers, device
// numbers and the syscall table numbering.
package defs

// Err_t is an errno-style result. Zero means success; a recoverable
// failure is one of the positive codes below, which the syscall
// boundary reports to userspace as -1 in rax.
type Err_t int

// Recoverable error codes. These cross the syscall boundary as -1
// (callers only distinguish "some error" from success) but are kept
// distinct internally for logging.
const (
	EFAULT       Err_t = 1
	ENOMEM       Err_t = 2
	ENOENT       Err_t = 3
	ENAMETOOLONG Err_t = 4
	EINVAL       Err_t = 5
	ENOHEAP      Err_t = 6
	EBADF        Err_t = 7
	ENOTDIR      Err_t = 8
	EISDIR       Err_t = 9
	ENOSYS       Err_t = 10
	EEXIST       Err_t = 11
)

// Pid_t identifies a task. PIDs are assigned monotonically from a
// process-wide counter and are never reused.
type Pid_t int

// Tid_t identifies a thread of control within a task. The core never
// runs more than one thread per task, but the type is kept distinct
// from Pid_t for the same reason the teacher kept tid and pid distinct.
type Tid_t int

// Device identifiers for the synthetic device filesystem.
const (
	D_CONSOLE int = 1
	D_SERIAL  int = 2
	D_ROOT    int = 3
	D_PROF    int = 7
)

// Syscall numbers bound by the dispatch table (spec §4.9).
const (
	SYS_EXIT    = 1
	SYS_BRK     = 2
	SYS_OPEN    = 3
	SYS_STAT    = 4
	SYS_READ    = 5
	SYS_WRITE   = 6
	SYS_READDIR = 7
	SYS_CHDIR   = 8
	SYS_FORK    = 9
	SYS_FSTAT   = 10
	SYS_GETCWD  = 11
	SYS_EXEC    = 12
	SYS_UPTIME  = 401
)

// O_* flags accepted by open/Fs_open. Only the bits the core's Non-goals
// leave in scope are defined.
const (
	O_RDONLY = 0
	O_WRONLY = 1
	O_RDWR   = 2
	O_CREAT  = 0x40
)
