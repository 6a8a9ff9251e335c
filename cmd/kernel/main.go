// Command kernel is the composition root: it plays the part of the
// boot-time trampoline spec §1 treats as an external collaborator,
// reads the init module and disk image off the real filesystem, and
// calls boot.Boot with the multiboot2 magic and a boot.Config standing
// in for the *MultibootInfo a loader would otherwise have handed off in
// registers.
//
// This binary never executes the loaded program: interpreting x86_64
// machine code is squarely the job of real hardware (or an emulator),
// neither of which this core provides. What it demonstrates is the
// boot sequence through the first task's entry point being set; the
// syscall dispatch scenarios (spec §8) are exercised by tests instead.
package main

import (
	"flag"
	"log"
	"os"

	"crux/boot"
)

func main() {
	arenaSize := flag.Int("arena", 64<<20, "size in bytes of the simulated physical address space")
	diskPath := flag.String("disk", "", "path to a pre-built ext2-like disk image")
	modulePath := flag.String("module", "", "path to the ELF64 static binary to boot as module[0]")
	flag.Parse()

	if *diskPath == "" || *modulePath == "" {
		log.Fatal("kernel: -disk and -module are required")
	}

	image, err := os.ReadFile(*modulePath)
	if err != nil {
		log.Fatalf("kernel: reading init module: %v", err)
	}

	cfg := boot.Config{
		ArenaSize:     *arenaSize,
		DiskImagePath: *diskPath,
		InitModule:    image,
		ConsoleIn:     os.Stdin,
		ConsoleOut:    os.Stdout,
		SerialOut:     os.Stderr,
	}

	booted, errt := boot.Boot(boot.Multiboot2Magic, cfg)
	if errt != 0 {
		log.Fatalf("kernel: boot failed: err=%d", errt)
	}

	log.Printf("kernel: booted pid=%d entry=%#x frames-remaining=%d heap-used=%d",
		booted.Init.Pid, booted.Init.Regs.Rip, booted.Kernel.Frames.Remaining(), booted.Kernel.Heap.Used())
}
