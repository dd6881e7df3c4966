package core

// Engines indexed by SPI instance. Vector table entries are plain functions,
// so each target installs a small trampoline per instance that calls
// DispatchSPIInterrupt / DispatchSelectEdge with a constant id.
var slaveRegistry [MaxSPIInstances]*RegisterSlave

// registerSlave claims the registry slot of an instance.
// A second engine on the same instance is a configuration defect.
func registerSlave(id SPIInstanceID, s *RegisterSlave) {
	if int(id) >= MaxSPIInstances {
		panic("register slave: SPI instance out of range")
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if slaveRegistry[id] != nil {
		panic("register slave: SPI instance " + itoa(int(id)) + " already in use")
	}
	slaveRegistry[id] = s
}

// UnregisterSlave releases an instance slot. Interrupts for the instance
// must already be disabled by the platform.
func UnregisterSlave(id SPIInstanceID) {
	if int(id) >= MaxSPIInstances {
		return
	}

	state := disableInterrupts()
	slaveRegistry[id] = nil
	restoreInterrupts(state)
}

// LookupSlave returns the engine registered for an instance, or nil
func LookupSlave(id SPIInstanceID) *RegisterSlave {
	if int(id) >= MaxSPIInstances {
		return nil
	}
	return slaveRegistry[id]
}

// DispatchSPIInterrupt is called from the byte-ready interrupt of an instance
func DispatchSPIInterrupt(id SPIInstanceID) {
	if int(id) >= MaxSPIInstances {
		return
	}
	if s := slaveRegistry[id]; s != nil {
		s.HandleSPIInterrupt()
	}
}

// DispatchSelectEdge is called from the select pin interrupt with the pin
// level after the edge. Select is active low.
func DispatchSelectEdge(id SPIInstanceID, level bool) {
	if int(id) >= MaxSPIInstances {
		return
	}
	s := slaveRegistry[id]
	if s == nil {
		return
	}
	if level {
		s.HandleSelectRise()
	} else {
		s.HandleSelectFall()
	}
}
